package core

import "time"

// AccountStatus enumera los estados posibles de una cuenta.
type AccountStatus string

const (
	AccountPending AccountStatus = "pending"
	AccountActive  AccountStatus = "active"
	AccountBanned  AccountStatus = "banned"
)

// Account es la cuenta interna de la consola. Email es único a nivel de
// sistema; CurrentTenantID apunta al workspace activo (puede ser nil hasta
// el primer provisioning).
type Account struct {
	ID                string
	Email             string
	Name              string
	Status            AccountStatus
	InterfaceLanguage string
	CurrentTenantID   *string
	InitializedAt     *time.Time
	CreatedAt         time.Time
}

// IdentityLink asocia (provider, subject_id) externo con una cuenta.
// Único sobre (provider, subject_id); nunca se reasigna.
type IdentityLink struct {
	ID        string
	Provider  string
	SubjectID string
	AccountID string
	CreatedAt time.Time
}

// Tenant es el workspace que agrupa apps y miembros.
type Tenant struct {
	ID        string
	Name      string
	Plan      string
	Status    string
	CreatedAt time.Time
}

// Roles de membresía dentro de un tenant.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleNormal = "normal"
)

// TenantMember es la relación cuenta↔tenant con rol.
// Único sobre (tenant_id, account_id).
type TenantMember struct {
	ID        string
	TenantID  string
	AccountID string
	Role      string
	CreatedAt time.Time
}

// Modos de app permitidos en creación.
var AllowedAppModes = []string{"chat", "agent-chat", "advanced-chat", "workflow", "completion"}

// App es una aplicación perteneciente a un tenant.
type App struct {
	ID             string
	TenantID       string
	Name           string
	Description    string
	Mode           string
	Icon           string
	IconBackground string
	EnableSite     bool
	EnableAPI      bool
	CreatedBy      string
	CreatedAt      time.Time
}

// APIKey es una credencial de la Service API. Solo se persiste el hash
// SHA-256 del token; LastFour permite identificarla en listados.
type APIKey struct {
	ID         string
	AppID      string
	TenantID   string
	Type       string // "app"
	TokenHash  string
	LastFour   string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}
