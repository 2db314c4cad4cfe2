package models

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Username        string          `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name            string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Email           string          `gorm:"size:100;index" json:"email"`
	Phone           string          `gorm:"size:20" json:"phone"`
	City            string          `gorm:"size:100;index:idx_user_fanout,priority:1" json:"city"`
	FavoritePetType string          `gorm:"size:50;index:idx_user_fanout,priority:2" json:"favorite_pet_type"`
	AccountBalance  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"account_balance"`
	ImageUrl        string          `json:"image_url"`
	Password        string          `gorm:"size:255;not null" json:"password"`
	IsActive        *bool           `gorm:"not null" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username        string `json:"username" binding:"required"`
	Name            string `json:"name" binding:"required"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	City            string `json:"city" binding:"required"`
	FavoritePetType string `json:"favorite_pet_type"`
	ImageUrl        string `json:"image_url"`
	Password        string `json:"password" binding:"required"`
}

/*
caches:
	User:$username
	Token:$token
	Tokens:$username
*/

func (user User) RemoveInstanceRedis() error {
	if err := config.RemoveRedisKey("User:" + user.Username); err != nil {
		return err
	}
	return nil
}

type LoginInfo struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	City  string `json:"city"`
}

func (result *User) PrepareGive() {
	result.Password = ""
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("token is required")
	}
	err := config.RemoveRedisKey("Token:" + fmt.Sprint(token))
	if err != nil {
		return false, nil
	}
	// remove current token from tokens list
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return false, errors.New("user not found")
	}
	if err := config.RemoveRedisSetMember("Tokens:"+username, token); err != nil {
		return false, err
	}
	return true, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	db := config.GetDB()
	var err error
	var result LoginInfo

	user := User{}

	// get User info
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return &result, err
	}
	if !exists {
		err = db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error

		if err != nil {
			return &result, utils.NewSessionError("invalid username or password", err)
		}
	}

	// check login credentials
	err = utils.ComparePassword(user.Password, password)

	if err != nil && err == bcrypt.ErrMismatchedHashAndPassword {
		return &result, utils.NewSessionError("invalid username or password", err)
	}

	isActive := *user.IsActive
	if !isActive {
		return &result, utils.NewForbiddenError("user is disabled", nil)
	}

	// generate token & response
	token, err := utils.JwtGenerate(user.ID, user.Username)
	if err != nil {
		return &result, err
	}
	result.Token = token
	result.Name = user.Username
	result.City = user.City

	token_lifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil {
		return &result, err
	}

	// add new token to the user's tokens set
	if err := config.AddRedisSet("Tokens:"+user.Username, token); err != nil {
		return nil, err
	}
	if err := config.SetRedisValue("Token:"+token, user.Username, time.Duration(token_lifespan)*time.Hour); err != nil {
		return &result, err
	}

	return &result, nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	db := config.GetDB()
	var count int64

	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return &User{}, utils.NewValidationError("invalid email address", nil)
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return &User{}, utils.NewValidationError("invalid phone number", err)
		}
	}

	err := db.WithContext(ctx).Model(&User{}).Where("username = ?", input.Username).Count(&count).Error
	if err != nil {
		return &User{}, err
	}
	if count > 0 {
		return &User{}, utils.NewConflictError("duplicate username", nil)
	}

	hashedPassword, err := utils.HashPassword(input.Password)
	if err != nil {
		return &User{}, err
	}

	user := User{
		Username:        html.EscapeString(strings.TrimSpace(input.Username)),
		Name:            input.Name,
		Email:           strings.ToLower(input.Email),
		Phone:           input.Phone,
		City:            input.City,
		FavoritePetType: input.FavoritePetType,
		ImageUrl:        input.ImageUrl,
		Password:        string(hashedPassword),
		AccountBalance:  decimal.Zero,
		IsActive:        utils.NewTrue(),
	}

	err = db.WithContext(ctx).Create(&user).Error
	if err != nil {
		return &User{}, err
	}
	user.Password = ""
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {

	db := config.GetDB()
	var result User

	err := db.WithContext(ctx).First(&result, id).Error

	if err != nil {
		return &result, utils.ErrorRecordNotFound
	}

	result.PrepareGive()

	return &result, nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {

	db := config.GetDB()
	var result User

	err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	return &result, nil
}

// users in a city whose favorite pet type matches, excluding the poster.
// Used by the fan-out job handlers; zero matches is a normal outcome.
func FindUsersForFanOut(ctx context.Context, city string, petType string, excludeUserId int) ([]*User, error) {

	db := config.GetDB()
	var results []*User

	err := db.WithContext(ctx).Model(&User{}).
		Where("city = ? AND favorite_pet_type = ? AND id != ? AND is_active = ?", city, petType, excludeUserId, true).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (user *User) DestroyAllSessions(ctx context.Context) error {
	allTokens, err := config.GetRedisSetMembers("Tokens:" + user.Username)
	if err != nil {
		return err
	}
	for _, token := range allTokens {
		if err := config.RemoveRedisKey("Token:" + token); err != nil {
			return err
		}
	}
	if err := config.RemoveRedisKey("Tokens:" + user.Username); err != nil {
		return err
	}

	return nil
}

func ChangePassword(ctx context.Context, oldPassword string, newPassword string) (*User, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}

	var user User
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&user, userId).Error; err != nil {
		return nil, err
	}
	// check oldPassword
	if err := utils.ComparePassword(user.Password, oldPassword); err != nil {
		return nil, utils.NewValidationError("old password is wrong", err)
	}

	hashedPassword, err := utils.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(&user).UpdateColumn("password", string(hashedPassword)).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := config.RemoveRedisKey("User:" + user.Username); err != nil {
		tx.Rollback()
		return nil, err
	}

	// destroying all session tokens
	if err := user.DestroyAllSessions(ctx); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &user, tx.Commit().Error
}
