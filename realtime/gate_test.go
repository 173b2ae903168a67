// SPDX-License-Identifier: MIT

package realtime

import (
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// The transport abstraction must stay importable on its own: no chat layer,
// no module internals, no HTTP machinery.
func TestTransportImportsStayClean(t *testing.T) {
	pkgs, err := packages.Load(&packages.Config{Mode: packages.NeedImports},
		"github.com/roomkit/roomkit/realtime",
		"github.com/roomkit/roomkit/realtime/realtimetest",
	)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	banned := []string{
		"github.com/roomkit/roomkit/chat",
		"github.com/roomkit/roomkit/internal",
		"net/http",
	}

	for _, pkg := range pkgs {
		for imp := range pkg.Imports {
			for _, b := range banned {
				if strings.Contains(imp, b) {
					t.Errorf("%s imports %s, which is off limits here", pkg.PkgPath, imp)
				}
			}
		}
	}
}
