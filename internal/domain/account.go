package domain

// ServiceID identifies an external account service.
type ServiceID string

const (
	ServiceLINE    ServiceID = "line"
	ServiceDiscord ServiceID = "discord"
	ServiceGitHub  ServiceID = "github"
)

// Service is a catalog entry. Required is fixed per deployment, not per member.
type Service struct {
	ID       ServiceID
	Required bool
}

// Group returns the visibility group disclosing this service's connection.
func (s Service) Group() GroupID { return GroupID(s.ID) }

// AccountConnection is a member's link to an external service.
// ExternalID is empty unless Connected is true.
type AccountConnection struct {
	Service    ServiceID
	Connected  bool
	ExternalID string
}
