package auth

import "strconv"

func formatSubject(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func parseSubject(subject string) (int64, error) {
	return strconv.ParseInt(subject, 10, 64)
}
