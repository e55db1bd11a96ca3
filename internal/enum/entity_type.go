package enum

type EntityType string

const (
	DOMAIN   EntityType = "DOMAIN"
	MAILBOX  EntityType = "MAILBOX"
	CAMPAIGN EntityType = "CAMPAIGN"
	TENANT   EntityType = "TENANT"
)

func (entityType EntityType) String() string {
	return string(entityType)
}

func GetEntityType(s string) EntityType {
	return EntityType(s)
}
