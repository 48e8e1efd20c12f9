package profiles

import (
	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/platform/markdown"
)

// MemberView is one member as seen by a viewer. Bio is nil when the biography is
// hidden from the viewer.
type MemberView struct {
	MemberID domain.MemberID
	View     domain.RedactedView
	Bio      *markdown.Node
}

type Completeness struct {
	Complete bool
	Missing  []domain.ServiceID
}
