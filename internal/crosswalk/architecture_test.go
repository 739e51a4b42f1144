package crosswalk

import (
	"testing"

	"crosswalk/testutil"
)

func TestResolutionPackageHasNoIO(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.IOImportForbidden, "resolution must stay a pure in-memory computation")
}
