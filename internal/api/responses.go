package api

import (
	"time"

	"soundcrate/internal/models"
)

// accountResponse is the public view of a user returned by register and
// profile updates. The password hash is never part of any response.
type accountResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	IsAdmin        bool   `json:"isAdmin"`
	ProfilePicture string `json:"profilePicture"`
}

func newAccountResponse(user models.User) accountResponse {
	return accountResponse{
		ID:             user.ID,
		Name:           user.Name,
		Email:          user.Email,
		IsAdmin:        user.IsAdmin,
		ProfilePicture: user.ProfilePicture,
	}
}

type loginResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	IsAdmin        bool      `json:"isAdmin"`
	ProfilePicture string    `json:"profilePicture"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// profileResponse omits both the id and the password hash.
type profileResponse struct {
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	ProfilePicture    string    `json:"profilePicture"`
	IsAdmin           bool      `json:"isAdmin"`
	LikedSongs        []string  `json:"likedSongs"`
	LikedAlbums       []string  `json:"likedAlbums"`
	FollowedArtists   []string  `json:"followedArtists"`
	FollowedPlaylists []string  `json:"followedPlaylists"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func newProfileResponse(user models.User) profileResponse {
	return profileResponse{
		Name:              user.Name,
		Email:             user.Email,
		ProfilePicture:    user.ProfilePicture,
		IsAdmin:           user.IsAdmin,
		LikedSongs:        nonNil(user.LikedSongs),
		LikedAlbums:       nonNil(user.LikedAlbums),
		FollowedArtists:   nonNil(user.FollowedArtists),
		FollowedPlaylists: nonNil(user.FollowedPlaylists),
		CreatedAt:         user.CreatedAt,
		UpdatedAt:         user.UpdatedAt,
	}
}

type artistListResponse struct {
	Artists      []models.Artist `json:"artists"`
	Page         int             `json:"page"`
	Pages        int             `json:"pages"`
	TotalArtists int             `json:"totalArtists"`
}

type albumResponse struct {
	Message string       `json:"message"`
	Album   models.Album `json:"album"`
}

type albumListResponse struct {
	Message     string         `json:"message,omitempty"`
	Albums      []models.Album `json:"albums"`
	Page        int            `json:"page"`
	TotalPages  int            `json:"totalPages"`
	TotalAlbums int            `json:"totalAlbums"`
}

type albumFeedResponse struct {
	Albums []models.Album `json:"albums"`
}

type songResponse struct {
	Message string      `json:"message"`
	Song    models.Song `json:"song"`
}

type songListResponse struct {
	Songs      []models.Song `json:"songs"`
	Page       int           `json:"page"`
	TotalPages int           `json:"totalPages"`
	TotalSongs int           `json:"totalSongs"`
}

type songFeedResponse struct {
	Songs []models.Song `json:"songs"`
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
