package models

type ActorRole string // Роль участника площадки

const (
	CompanyRole    ActorRole = "company"    // Компания или организация
	FreelancerRole ActorRole = "freelancer" // Исполнитель
	AdminRole      ActorRole = "admin"      // Администратор площадки
)

// Actor представляет проверенную личность участника.
// Идентичность подтверждается внешним слоем аутентификации.
type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role"`
}

// IsAdmin сообщает, обладает ли участник административными правами.
func (a Actor) IsAdmin() bool {
	return a.Role == AdminRole
}

// ValidActorRoles список валидных ролей.
var ValidActorRoles = map[ActorRole]struct{}{
	CompanyRole:    {},
	FreelancerRole: {},
	AdminRole:      {},
}
