package types

import "time"

// Users
type User struct {
	ID           uint64 `gorm:"primaryKey"`
	Nickname     string `gorm:"size:64;unique;not null"`
	Email        string `gorm:"size:256;unique;not null"`
	PasswordHash string `gorm:"size:128;not null"`
	Coins        int64  `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Projects
type Project struct {
	ID          uint64 `gorm:"primaryKey"`
	Name        string `gorm:"size:128;not null"`
	Description string `gorm:"type:text"`
	CreatorID   uint64 `gorm:"index;not null"`
	Treasury    int64  `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Project membership; the creator always has a row
type ProjectMember struct {
	ProjectID uint64 `gorm:"primaryKey"`
	UserID    uint64 `gorm:"primaryKey"`
	Role      string `gorm:"size:32;default:'member'"` // creator, member
	CreatedAt time.Time
}

// Per-project multipliers converting coin actions into contribution score.
// Exactly one row per project, seeded when the project is created.
type ContributionRates struct {
	ProjectID            uint64  `gorm:"primaryKey"`
	ProposalCreation     float64 `gorm:"not null;default:0"`
	BountyCreation       float64 `gorm:"not null;default:0"`
	BountyCompletion     float64 `gorm:"not null;default:0"`
	OneTimeContribution  float64 `gorm:"not null;default:0"`
	LongTermContribution float64 `gorm:"not null;default:0"`
	UpdatedAt            time.Time
}

// Accumulated contribution score per (project, user)
type Contribution struct {
	ProjectID uint64  `gorm:"primaryKey"`
	UserID    uint64  `gorm:"primaryKey"`
	Score     float64 `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// Proposal statuses
const (
	ProposalOpen      = "open"
	ProposalQueued    = "queued"
	ProposalCompleted = "completed"
	ProposalClosed    = "closed"
)

type Proposal struct {
	ID               uint64 `gorm:"primaryKey"`
	ProjectID        uint64 `gorm:"index;not null"`
	CreatorID        uint64 `gorm:"index;not null"`
	Title            string `gorm:"size:255;not null"`
	Description      string `gorm:"type:text"`
	Category         string `gorm:"size:64"`
	Status           string `gorm:"size:16;not null;default:'open'"`
	QueuedBy         *uint64
	QueuedByNickname string `gorm:"size:64"`
	QueuedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type ProposalLike struct {
	ProposalID uint64 `gorm:"primaryKey"`
	UserID     uint64 `gorm:"primaryKey"`
	CreatedAt  time.Time
}

// Bounty statuses
const (
	BountyActive  = "active"
	BountyPending = "pending"
	BountyClosed  = "closed"
)

// Coins escrowed against a proposal. The amount leaves the pledger's wallet
// when the row is created and comes back only through payout or refund.
type Bounty struct {
	ID         uint64 `gorm:"primaryKey"`
	ProposalID uint64 `gorm:"index;not null"`
	UserID     uint64 `gorm:"index;not null"`
	Amount     int64  `gorm:"not null"`
	Status     string `gorm:"size:16;not null;default:'active'"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Donation struct {
	ID        uint64 `gorm:"primaryKey"`
	FromID    uint64 `gorm:"index;not null"`
	ToID      uint64 `gorm:"not null"`
	ProjectID uint64 `gorm:"index;not null"`
	Amount    int64  `gorm:"not null"`
	Message   string `gorm:"size:512"`
	CreatedAt time.Time
}

type Subscription struct {
	ID            uint64 `gorm:"primaryKey"`
	FromID        uint64 `gorm:"index;not null"`
	ToID          uint64 `gorm:"not null"`
	ProjectID     uint64 `gorm:"index;not null"`
	Amount        int64  `gorm:"not null"`
	Active        bool   `gorm:"default:true"`
	NextPaymentAt time.Time
	CreatedAt     time.Time
}

type WithdrawalRecord struct {
	ID        uint64 `gorm:"primaryKey"`
	ProjectID uint64 `gorm:"index;not null"`
	UserID    uint64 `gorm:"not null"`
	Amount    int64  `gorm:"not null"`
	CreatedAt time.Time
}

// Appended to a project's feed when a proposal completes
type ProjectUpdate struct {
	ID         uint64 `gorm:"primaryKey"`
	ProjectID  uint64 `gorm:"index;not null"`
	ProposalID uint64 `gorm:"not null"`
	Body       string `gorm:"type:text;not null"`
	CreatedAt  time.Time
}

// Migrate lists every model for AutoMigrate at startup.
func Migrate() []any {
	return []any{
		&User{}, &Project{}, &ProjectMember{}, &ContributionRates{},
		&Contribution{}, &Proposal{}, &ProposalLike{}, &Bounty{},
		&Donation{}, &Subscription{}, &WithdrawalRecord{}, &ProjectUpdate{},
	}
}
