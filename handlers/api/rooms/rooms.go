package rooms

import (
	"collabnotes-server/core"
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	RoomInfo struct {
		ID         string `json:"id"`
		Users      int    `json:"users"`
		Title      string `json:"title,omitempty"`
		LastActive *int64 `json:"lastActive,omitempty"`
	}

	// ActiveRooms reports the member count of every occupied room.
	ActiveRooms interface {
		Rooms() map[string]int
	}

	DocumentGetter interface {
		Get(ctx context.Context, id string) (*core.Document, error)
	}
)

// HandleList lists the rooms that currently have users, busiest first.
func HandleList(active ActiveRooms, store DocumentGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts := active.Rooms()
		roomList := make([]RoomInfo, 0, len(counts))

		for id, users := range counts {
			info := RoomInfo{ID: id, Users: users}

			doc, err := store.Get(r.Context(), id)
			switch {
			case err == nil:
				info.Title = doc.Title
				lastActive := doc.UpdatedAt.UnixMilli()
				info.LastActive = &lastActive
			case errors.Is(err, core.ErrDocumentNotFound):
			default:
				logrus.WithField("room_id", id).WithError(err).Warn("Failed to load room document")
			}

			roomList = append(roomList, info)
		}

		sortRooms(roomList)
		render.JSON(w, r, roomList)
	}
}

func sortRooms(roomList []RoomInfo) {
	sort.Slice(roomList, func(i, j int) bool {
		if roomList[i].Users != roomList[j].Users {
			return roomList[i].Users > roomList[j].Users
		}
		li, lj := lastActive(roomList[i]), lastActive(roomList[j])
		if li != lj {
			return li > lj
		}
		return roomList[i].ID < roomList[j].ID
	})
}

func lastActive(info RoomInfo) int64 {
	if info.LastActive == nil {
		return 0
	}
	return *info.LastActive
}
