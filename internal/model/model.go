// Package model holds the records exchanged with the nexd backend.
package model

import (
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of a help request.
type RequestStatus string

const (
	StatusPending     RequestStatus = "pending"
	StatusOngoing     RequestStatus = "ongoing"
	StatusCompleted   RequestStatus = "completed"
	StatusDeactivated RequestStatus = "deactivated"
)

// ListStatus is the state of a helper's shopping list.
type ListStatus string

const (
	ListActive   ListStatus = "active"
	ListInactive ListStatus = "inactive"
)

// User is the signed-in account.
type User struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Street      string `json:"street,omitempty"`
	Number      string `json:"number,omitempty"`
	ZipCode     string `json:"zipCode,omitempty"`
	City        string `json:"city,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// HelpList is the set of requests a helper has accepted.
type HelpList struct {
	ID           int64         `json:"id"`
	OwnerID      string        `json:"ownerId"`
	Status       ListStatus    `json:"status"`
	HelpRequests []HelpRequest `json:"helpRequests"`
}

// HelpRequestArticle is one line of a help request.
type HelpRequestArticle struct {
	ArticleID    int64  `json:"articleId"`
	ArticleName  string `json:"articleName,omitempty"`
	ArticleCount int64  `json:"articleCount"`
	UnitID       *int64 `json:"unitId,omitempty"`
	Done         bool   `json:"articleDone,omitempty"`
}

// HelpRequest is a seeker's request for help.
type HelpRequest struct {
	ID                int64                `json:"id"`
	RequesterID       string               `json:"requesterId"`
	Status            RequestStatus        `json:"status"`
	FirstName         string               `json:"firstName,omitempty"`
	LastName          string               `json:"lastName,omitempty"`
	Street            string               `json:"street,omitempty"`
	Number            string               `json:"number,omitempty"`
	ZipCode           string               `json:"zipCode,omitempty"`
	City              string               `json:"city,omitempty"`
	PhoneNumber       string               `json:"phoneNumber,omitempty"`
	AdditionalRequest string               `json:"additionalRequest,omitempty"`
	DeliveryComment   string               `json:"deliveryComment,omitempty"`
	Articles          []HelpRequestArticle `json:"articles"`
	HelpListID        *int64               `json:"helpListId,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
}

// DisplayName is how a request is labelled in lists.
func (r HelpRequest) DisplayName() string {
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		return "anonymous"
	}
	return name
}

// Article is an entry of the article catalog.
type Article struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Language    string  `json:"language,omitempty"`
	Verified    bool    `json:"statusOverwritten,omitempty"`
	UnitIDOrder []int64 `json:"unitIdOrder,omitempty"`
}

// Unit is an entry of the unit catalog (piece, kg, pack...).
type Unit struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	NameShort string `json:"nameShort"`
	Language  string `json:"language,omitempty"`
}

// Item is a line the seeker is putting together before submitting.
type Item struct {
	Article *Article
	Name    string
	Amount  int64
	Unit    *Unit
}

// Blank reports whether the item has no usable name and must be dropped
// before submission.
func (i Item) Blank() bool { return strings.TrimSpace(i.Name) == "" }

// FindUnit returns the first unit of order present in units.
func FindUnit(units []Unit, order []int64) *Unit {
	for _, id := range order {
		for i := range units {
			if units[i].ID == id {
				u := units[i]
				return &u
			}
		}
	}
	return nil
}
