package backplane

import "fmt"

// RoomGroup names the broadcast group for a room's sockets.
func RoomGroup(roomID int) string {
	return fmt.Sprintf("room.%d", roomID)
}

// UserGroup names a user's personal notification group.
func UserGroup(userID int) string {
	return fmt.Sprintf("user.%d", userID)
}
