package models

import "time"

// Role обозначает автора реплики в диалоге.
type Role string

// Допустимые роли реплик.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid сообщает, входит ли роль в закрытый набор допустимых значений.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn представляет одну реплику диалога. После добавления в историю
// реплика не изменяется.
type Turn struct {
	ID        int               // Идентификатор реплики
	Role      Role              // Автор реплики
	Content   string            // Текст реплики
	Metadata  map[string]string // Дополнительные данные, может быть nil
	CreatedAt time.Time         // Время добавления
}
