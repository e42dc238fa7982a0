package quality

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/swarm/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// codeTypes are the task types concreteChecks applies to; research/design/
// review tasks have no artifact shape worth checking syntactically.
var codeTypes = map[models.TaskType]bool{
	models.TaskImplement: true,
	models.TaskTest:      true,
	models.TaskRefactor:  true,
	models.TaskIntegrate: true,
	models.TaskDeploy:    true,
}

// concreteChecks implements §4.6 layer 2: syntactic sanity on the files the
// worker reported modifying. It never calls an LLM.
func (g *Gate) concreteChecks(t *models.Task, result models.TaskResult) (Outcome, bool) {
	if !codeTypes[t.Type] || len(result.FilesModified) == 0 {
		return Outcome{}, false
	}

	for _, path := range result.FilesModified {
		data, err := g.readFile(path)
		if err != nil {
			return g.fail(1, "modified file "+path+" could not be read: "+err.Error(), false, false), true
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			return g.fail(1, "modified file "+path+" is empty", false, false), true
		}

		switch filepath.Ext(path) {
		case ".json":
			var v interface{}
			if err := json.Unmarshal(data, &v); err != nil {
				return g.fail(1, "modified file "+path+" is not valid JSON: "+err.Error(), false, false), true
			}
		case ".go", ".ts", ".js", ".c", ".cpp", ".java", ".rs":
			if !bracesRoughlyBalanced(string(data)) {
				return g.fail(1, "modified file "+path+" has grossly unbalanced braces", false, false), true
			}
		case ".md", ".markdown":
			if !markdownParses(data) {
				return g.fail(1, "modified file "+path+" does not parse as markdown", false, false), true
			}
		}
	}

	return Outcome{}, false
}

// bracesRoughlyBalanced is a cheap sanity check, not a parser: it tolerates
// braces inside strings/comments but catches the gross case of a worker
// truncating output mid-file.
func bracesRoughlyBalanced(src string) bool {
	depth := 0
	for _, r := range src {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		}
		if depth < -1 { // tolerate one stray closer from a quoted brace
			return false
		}
	}
	return depth >= -1 && depth <= 1
}

var markdownEngine = goldmark.New()

// markdownParses reports whether data parses to at least one non-empty AST
// node, catching the case of a worker writing a near-empty placeholder file.
func markdownParses(data []byte) bool {
	doc := markdownEngine.Parser().Parse(text.NewReader(data))
	return doc.Type() == ast.TypeDocument && doc.ChildCount() > 0
}
