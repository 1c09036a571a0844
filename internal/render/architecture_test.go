package render

import (
	"testing"

	"raceview/testutil"
)

func TestRenderImportBoundaries(t *testing.T) {
	testutil.AssertImports(t, ".",
		testutil.ImportRule{Reason: "render must not depend on transports", Forbidden: testutil.AdapterImports},
		testutil.ImportRule{Reason: "render works on views, not stores", Forbidden: testutil.PackagePrefix("raceview/internal/infra")},
	)
}
