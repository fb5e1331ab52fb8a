package architecture_test

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const module = "github.com/yungbote/journeys-backend"

// rule bans import prefixes for every package under dir.
type rule struct {
	dir    string
	banned []string
}

var (
	app      = module + "/internal/app"
	cli      = module + "/internal/cli"
	httpPkg  = module + "/internal/http"
	services = module + "/internal/services"
	data     = module + "/internal/data/"
	engine   = module + "/internal/modules/"
)

var rules = []rule{
	{"internal/platform", []string{engine, data, services, httpPkg, app, cli}},
	{"internal/domain", []string{engine, data, services, httpPkg, app, cli}},
	// The progression engine is pure: catalog, completions and grants in,
	// progress, locks and XP decisions out.
	{"internal/modules", []string{
		data, services, httpPkg, app, cli,
		"gorm.io/", "github.com/gin-gonic/", "github.com/redis/",
		"go.opentelemetry.io/", "cloud.google.com/", "github.com/aws/",
	}},
	{"internal/data", []string{services, httpPkg, app, cli}},
	{"internal/services", []string{httpPkg, app, cli}},
	{"internal/http", []string{app, cli}},
	{"internal/app", []string{cli}},
}

func TestImportBoundaries(t *testing.T) {
	root := moduleRoot(t)
	fset := token.NewFileSet()
	var violations []string

	for _, r := range rules {
		err := filepath.WalkDir(filepath.Join(root, r.dir), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
				return err
			}
			f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(root, path)
			for _, spec := range f.Imports {
				imp, _ := strconv.Unquote(spec.Path.Value)
				for _, bad := range r.banned {
					if strings.HasPrefix(imp, bad) {
						violations = append(violations, fmt.Sprintf("%s imports %s", filepath.ToSlash(rel), imp))
						break
					}
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("walk %s: %v", r.dir, err)
		}
	}
	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n  %s", strings.Join(violations, "\n  "))
	}
}

func moduleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		raw, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		if err == nil {
			if !strings.Contains(string(raw), "module "+module+"\n") {
				t.Fatalf("go.mod in %s does not declare %s", dir, module)
			}
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found")
		}
		dir = parent
	}
}
