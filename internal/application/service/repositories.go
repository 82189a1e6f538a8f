package service

import "github.com/garyjia/editorial-workflow/internal/application/port"

// Repositories groups the persistence ports used by the services
type Repositories struct {
	Definitions   port.DefinitionRepository
	Instances     port.InstanceRepository
	Bindings      port.BindingRepository
	Audit         port.AuditRepository
	Notifications port.NotificationRepository
}
