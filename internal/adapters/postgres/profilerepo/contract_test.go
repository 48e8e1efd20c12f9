package profilerepo

import (
	"testing"

	"github.com/Lumos-Programming/profile-api/internal/adapters/contracttest"
	"github.com/Lumos-Programming/profile-api/internal/adapters/postgres/testutil"
	profilerepoport "github.com/Lumos-Programming/profile-api/internal/ports/out/profilerepo"
)

func TestContract_PostgresProfileRepo(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	issuer := "https://issuer.test"

	contracttest.RunProfileRepo(t, func(t *testing.T) (profilerepoport.Repository, func()) {
		t.Helper()
		return NewRepo(pool, issuer), nil
	})
}
