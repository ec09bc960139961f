package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// User is a registered account.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"column:username;uniqueIndex;size:64;not null" json:"username"`
	Email        string    `gorm:"column:email;uniqueIndex;size:255;not null" json:"email"`
	FullName     string    `gorm:"column:full_name;size:255" json:"full_name"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	Disabled     bool      `gorm:"column:disabled;not null;default:false" json:"disabled"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the default table name.
func (User) TableName() string {
	return "users"
}

// UserRepository provides persistence APIs for user accounts.
type UserRepository struct {
	base
}

// NewUserRepository creates a new repository instance.
func NewUserRepository(db *gorm.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{base: newBase(db, logger, "user_repository")}
}

// Create inserts user and fills its ID. A taken username or email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	return r.executeWithRetry(ctx, "repository.user.create", func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})
}

// FindByID loads a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*User, error) {
	var user User
	err := r.executeWithRetry(ctx, "repository.user.find_by_id", func(tx *gorm.DB) error {
		return tx.First(&user, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsername loads a user by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := r.executeWithRetry(ctx, "repository.user.find_by_username", func(tx *gorm.DB) error {
		return tx.First(&user, "username = ?", username).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns users ordered by id.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*User, error) {
	var users []*User
	err := r.executeWithRetry(ctx, "repository.user.list", func(tx *gorm.DB) error {
		return tx.Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Update saves the mutable profile fields of user.
func (r *UserRepository) Update(ctx context.Context, user *User) error {
	return r.executeWithRetry(ctx, "repository.user.update", func(tx *gorm.DB) error {
		res := tx.Model(&User{ID: user.ID}).Select("email", "full_name", "password_hash", "disabled").Updates(user)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Delete removes a user together with their image records.
// TODO: return the deleted records' object keys so the caller can purge their blobs.
func (r *UserRepository) Delete(ctx context.Context, id uint) error {
	return r.executeWithRetry(ctx, "repository.user.delete", func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("owner_id = ?", id).Delete(&ImageRecord{}).Error; err != nil {
				return err
			}
			res := tx.Delete(&User{}, id)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
			return nil
		})
	})
}
