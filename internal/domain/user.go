package domain

// User roles
const (
	RoleUser  = "user"  // Regular customer
	RoleAdmin = "admin" // Operator allowed to run billing and credit wallets
)

// User Model
type User struct {
	ID       uint    `gorm:"primaryKey" json:"id"`                    // Primary key
	Username string  `gorm:"size:64;unique;not null" json:"username"` // Unique username
	Email    string  `gorm:"size:255" json:"email"`                   // Notification address
	Role     string  `gorm:"size:16;default:user" json:"role"`        // Role: user or admin
	Wallet   *Wallet `json:"wallet,omitempty"`                        // One-to-one relationship with Wallet
}

// IsAdmin reports whether the user may use operator endpoints
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
