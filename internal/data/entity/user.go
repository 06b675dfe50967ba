package entity

type UserRole string

const (
	RolePatient    UserRole = "patient"
	RoleConsultant UserRole = "consultant"
	RoleAdmin      UserRole = "admin"
)

type User struct {
	Base
	FullName string   `db:"full_name"`
	Email    string   `db:"email"`
	Role     UserRole `db:"role"`
	IsActive bool     `db:"is_active"`
}
