package entity

// User is a read-only projection of the external user directory
type User struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Nickname  string `json:"nickname" gorm:"column:nickname;size:128"`
	Avatar    string `json:"avatar" gorm:"column:avatar;size:512"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for User
func (User) TableName() string {
	return "users"
}

// UserInfo represents public user info
type UserInfo struct {
	Id       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// ToUserInfo converts User to UserInfo
func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		Id:       u.Id,
		Nickname: u.Nickname,
		Avatar:   u.Avatar,
	}
}

// AccountRestriction is owned by the admin service; the chat engine only reads it
type AccountRestriction struct {
	UserId           int64  `json:"user_id" gorm:"column:user_id;primaryKey;autoIncrement:false"`
	IsSuspended      bool   `json:"is_suspended" gorm:"column:is_suspended"`
	SuspensionReason string `json:"suspension_reason" gorm:"column:suspension_reason;size:512"`
	SuspensionUntil  *int64 `json:"suspension_until" gorm:"column:suspension_until"`
}

// TableName returns the table name for AccountRestriction
func (AccountRestriction) TableName() string {
	return "account_restrictions"
}

// Suspension is the resolved suspension state of an account
type Suspension struct {
	Suspended bool   `json:"suspended"`
	Reason    string `json:"reason,omitempty"`
	Until     *int64 `json:"until,omitempty"`
}

// Resolve evaluates r at now (unix ms). An elapsed suspension_until lifts the suspension.
func (r *AccountRestriction) Resolve(now int64) *Suspension {
	if r == nil || !r.IsSuspended {
		return &Suspension{}
	}
	if r.SuspensionUntil != nil && *r.SuspensionUntil <= now {
		return &Suspension{}
	}
	return &Suspension{
		Suspended: true,
		Reason:    r.SuspensionReason,
		Until:     r.SuspensionUntil,
	}
}
