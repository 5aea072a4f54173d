package models

import "github.com/google/uuid"

// ActorRole identifies who is asking for a status transition
type ActorRole string

const (
	ActorSystem   ActorRole = "system"   // webhook, auto-assignment, scheduler
	ActorAdmin    ActorRole = "admin"    // platform operators
	ActorDetailer ActorRole = "detailer" // service provider acting on own bookings
)

// Actor is the caller context passed to the booking state machine
type Actor struct {
	Role       ActorRole
	UserID     *uuid.UUID
	DetailerID *uuid.UUID
}

// SystemActor is the trusted service context used by background paths
func SystemActor() Actor {
	return Actor{Role: ActorSystem}
}

// AdminActor builds an admin actor
func AdminActor(userID uuid.UUID) Actor {
	return Actor{Role: ActorAdmin, UserID: &userID}
}

// DetailerActor builds a detailer actor bound to their detailer record
func DetailerActor(userID, detailerID uuid.UUID) Actor {
	return Actor{Role: ActorDetailer, UserID: &userID, DetailerID: &detailerID}
}

// AuditID returns the id recorded on timeline rows
func (a Actor) AuditID() *uuid.UUID {
	if a.UserID != nil {
		return a.UserID
	}
	return nil
}
