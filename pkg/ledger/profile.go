package ledger

import "fmt"

// MaxDisplayNameLen is the storage bound for a profile display name, in bytes.
const MaxDisplayNameLen = 50

// ProfileRecord is the per-identity profile. OwnerID never changes after creation.
type ProfileRecord struct {
	OwnerID     Identity `json:"owner_id"`
	DisplayName string   `json:"display_name"`
	Age         uint8    `json:"age"`
	Balance     uint64   `json:"balance"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
}

// CreateProfile builds a fresh profile for owner. prior is whatever the store
// already holds for owner; a non-nil prior fails with ErrAlreadyExists.
func CreateProfile(prior *ProfileRecord, owner Identity, name string, age uint8, now int64) (ProfileRecord, error) {
	if prior != nil {
		return ProfileRecord{}, fmt.Errorf("profile %s: %w", owner, ErrAlreadyExists)
	}
	if err := ValidIdentity(owner); err != nil {
		return ProfileRecord{}, err
	}
	if err := checkLen("display name", name, MaxDisplayNameLen); err != nil {
		return ProfileRecord{}, err
	}
	if err := checkTime(now); err != nil {
		return ProfileRecord{}, err
	}
	return ProfileRecord{
		OwnerID:     owner,
		DisplayName: name,
		Age:         age,
		Balance:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdateProfile replaces the name and age. Only the owner may call it.
// On error the input record is returned untouched.
func UpdateProfile(rec ProfileRecord, name string, age uint8, now int64, caller Identity) (ProfileRecord, error) {
	if caller != rec.OwnerID {
		return rec, fmt.Errorf("update profile %s as %s: %w", rec.OwnerID, caller, ErrUnauthorized)
	}
	if err := checkLen("display name", name, MaxDisplayNameLen); err != nil {
		return rec, err
	}
	if err := checkTime(now); err != nil {
		return rec, err
	}
	next := rec
	next.DisplayName = name
	next.Age = age
	next.UpdatedAt = touch(rec.CreatedAt, now)
	return next, nil
}

// AddBalance credits amount to the profile balance through CheckedAdd.
func AddBalance(rec ProfileRecord, amount uint64, caller Identity, now int64) (ProfileRecord, error) {
	if caller != rec.OwnerID {
		return rec, fmt.Errorf("add balance to %s as %s: %w", rec.OwnerID, caller, ErrUnauthorized)
	}
	if err := checkTime(now); err != nil {
		return rec, err
	}
	balance, err := CheckedAdd(rec.Balance, amount)
	if err != nil {
		return rec, fmt.Errorf("balance of %s: %w", rec.OwnerID, err)
	}
	next := rec
	next.Balance = balance
	next.UpdatedAt = touch(rec.CreatedAt, now)
	return next, nil
}

// touch keeps updated_at >= created_at even if the clock steps back.
func touch(createdAt, now int64) int64 {
	if now < createdAt {
		return createdAt
	}
	return now
}
