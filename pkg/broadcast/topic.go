package broadcast

import (
	"fmt"
	"strconv"
)

// Topic is a subscription key such as train_5 or user_42
type Topic string

func TrainTopic(trainID int64) Topic {
	return Topic(fmt.Sprintf("train_%d", trainID))
}

func StationTopic(stationID int64) Topic {
	return Topic(fmt.Sprintf("station_%d", stationID))
}

func UserTopic(userID string) Topic {
	return Topic("user_" + userID)
}

func BookingTopic(bookingID int64) Topic {
	return Topic(fmt.Sprintf("booking_%d", bookingID))
}

func BookingUserTopic(userID int64) Topic {
	return UserTopic(strconv.FormatInt(userID, 10))
}
