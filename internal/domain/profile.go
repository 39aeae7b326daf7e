package domain

import "time"

type Profile struct {
	UserID      string    `json:"user_id" dynamodbav:"user_id"`
	DisplayName string    `json:"display_name" dynamodbav:"display_name"`
	Phone       *string   `json:"phone" dynamodbav:"phone"`
	ImageKey    string    `json:"-" dynamodbav:"image_key"`
	ImageURL    *string   `json:"image_url" dynamodbav:"image_url"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=150"`
	Phone       *string `json:"phone" validate:"omitempty,e164"`
}
