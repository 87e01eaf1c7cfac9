package catalog

import (
	"testing"

	"enkfcore/testutil"
)

func TestOnlyCatalogPackageImportsInfra(t *testing.T) {
	testutil.AssertInfraBehindWrapper(t, "enkfcore/...", "enkfcore/internal/infra/catalog", "enkfcore/internal/catalog")
}
