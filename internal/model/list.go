package model

import "time"

type List struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
	CreatorID   int64     `json:"creatorId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ListSummary is a list row augmented with item counts for the overview page.
type ListSummary struct {
	List
	CreatorName    string `json:"creatorName"`
	TotalItems     int    `json:"totalItems"`
	PurchasedItems int    `json:"purchasedItems"`
}

type ListMember struct {
	ID       int64     `json:"id"`
	ListID   int64     `json:"listId"`
	UserID   int64     `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// MemberInfo pairs a member's user id with their display name for list detail.
type MemberInfo struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
}
