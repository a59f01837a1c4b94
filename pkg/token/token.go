// Package token holds the records and validation rules for the
// token-metadata surface: creator-editable descriptions, social links and
// images bound to a (chain_id, token_address) pair, plus the administrative
// lock machinery.
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rexpump/mediad/pkg/apperr"
)

const (
	MaxDescriptionLen = 255
	MaxSocialNameLen  = 32
	MaxSocialLinkLen  = 256
)

// NormalizeAddress lowercases an EVM address and ensures the 0x prefix.
// It does not validate hex content; pair with ValidateAddress.
func NormalizeAddress(addr string) string {
	a := strings.ToLower(strings.TrimSpace(addr))
	if !strings.HasPrefix(a, "0x") {
		a = "0x" + a
	}
	return a
}

// ValidateAddress checks that addr is 0x followed by exactly 40 hex chars.
func ValidateAddress(addr string) error {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return apperr.Ef(apperr.KindValidation, "invalid address %q: must be 0x followed by 40 hex characters", addr)
	}
	for _, c := range addr[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return apperr.Ef(apperr.KindValidation, "invalid address %q: non-hex character", addr)
		}
	}
	return nil
}

// Key builds the canonical "<chain>:<addr>" store key component.
func Key(chainID uint64, addr string) string {
	return fmt.Sprintf("%d:%s", chainID, NormalizeAddress(addr))
}

// SocialNetwork is one named external link.
type SocialNetwork struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// Metadata is the persisted record for one token.
type Metadata struct {
	ChainID        uint64          `json:"chain_id"`
	TokenAddress   string          `json:"token_address"`
	Description    string          `json:"description"`
	SocialNetworks []SocialNetwork `json:"social_networks"`
	ImageLightID   *uuid.UUID      `json:"image_light_id,omitempty"`
	ImageDarkID    *uuid.UUID      `json:"image_dark_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LastUpdateBy   string          `json:"last_update_by"`
}

// NewMetadata builds an empty record bound to its key and author.
func NewMetadata(chainID uint64, addr, updatedBy string) *Metadata {
	now := time.Now().UTC()
	return &Metadata{
		ChainID:        chainID,
		TokenAddress:   NormalizeAddress(addr),
		SocialNetworks: []SocialNetwork{},
		CreatedAt:      now,
		UpdatedAt:      now,
		LastUpdateBy:   updatedBy,
	}
}

// LockType distinguishes a plain lock from one that also resets content.
type LockType string

const (
	// LockTypeLocked freezes the record; existing content is preserved
	// and still served.
	LockTypeLocked LockType = "locked"
	// LockTypeLockedWithDefaults freezes the record and rewrites it to
	// empty defaults; public reads see placeholder content.
	LockTypeLockedWithDefaults LockType = "locked_with_defaults"
)

// Valid reports whether t is a known lock type.
func (t LockType) Valid() bool {
	return t == LockTypeLocked || t == LockTypeLockedWithDefaults
}

// Lock is an administrative freeze on a token's metadata.
type Lock struct {
	ChainID      uint64    `json:"chain_id"`
	TokenAddress string    `json:"token_address"`
	LockedAt     time.Time `json:"locked_at"`
	LockedBy     string    `json:"locked_by"`
	LockType     LockType  `json:"lock_type"`
	Reason       string    `json:"reason,omitempty"`
}

// UpdateRecord carries the last-update timestamp used for cooldowns.
type UpdateRecord struct {
	LastUpdateAt time.Time `json:"last_update_at"`
}

// MetadataInput is the client-supplied metadata JSON.
type MetadataInput struct {
	Description    string          `json:"description"`
	SocialNetworks []SocialNetwork `json:"social_networks"`
}

// Validate enforces the length bounds and the http(s) link prefix.
func (in *MetadataInput) Validate() error {
	if len(in.Description) > MaxDescriptionLen {
		return apperr.Ef(apperr.KindValidation, "description exceeds %d characters", MaxDescriptionLen)
	}
	for _, sn := range in.SocialNetworks {
		if sn.Name == "" || len(sn.Name) > MaxSocialNameLen {
			return apperr.Ef(apperr.KindValidation, "social network name must be 1-%d characters", MaxSocialNameLen)
		}
		if len(sn.Link) > MaxSocialLinkLen {
			return apperr.Ef(apperr.KindValidation, "social network link exceeds %d characters", MaxSocialLinkLen)
		}
		if !strings.HasPrefix(sn.Link, "http://") && !strings.HasPrefix(sn.Link, "https://") {
			return apperr.Ef(apperr.KindValidation, "social network link %q must start with http:// or https://", sn.Link)
		}
	}
	return nil
}

// MetadataResponse is the public read DTO.
type MetadataResponse struct {
	ChainID        uint64          `json:"chain_id"`
	TokenAddress   string          `json:"token_address"`
	Description    string          `json:"description"`
	SocialNetworks []SocialNetwork `json:"social_networks"`
	ImageLightURL  string          `json:"image_light_url,omitempty"`
	ImageDarkURL   string          `json:"image_dark_url,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewMetadataResponse builds the public DTO from a record.
func NewMetadataResponse(m *Metadata, baseURL string) MetadataResponse {
	resp := MetadataResponse{
		ChainID:        m.ChainID,
		TokenAddress:   m.TokenAddress,
		Description:    m.Description,
		SocialNetworks: m.SocialNetworks,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if resp.SocialNetworks == nil {
		resp.SocialNetworks = []SocialNetwork{}
	}
	if m.ImageLightID != nil {
		resp.ImageLightURL = fmt.Sprintf("%s/m/%s", baseURL, *m.ImageLightID)
	}
	if m.ImageDarkID != nil {
		resp.ImageDarkURL = fmt.Sprintf("%s/m/%s", baseURL, *m.ImageDarkID)
	}
	return resp
}

// DefaultLockedResponse is what public reads see for a token locked with
// defaults: empty text, empty socials, both images pointing at the
// placeholder asset.
func DefaultLockedResponse(chainID uint64, addr, baseURL string) MetadataResponse {
	now := time.Now().UTC()
	placeholder := baseURL + "/m/default"
	return MetadataResponse{
		ChainID:        chainID,
		TokenAddress:   NormalizeAddress(addr),
		Description:    "",
		SocialNetworks: []SocialNetwork{},
		ImageLightURL:  placeholder,
		ImageDarkURL:   placeholder,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AdminMetadataResponse is the admin read DTO: record plus lock state.
type AdminMetadataResponse struct {
	Metadata *Metadata `json:"metadata"`
	Lock     *Lock     `json:"lock"`
	IsLocked bool      `json:"is_locked"`
}
