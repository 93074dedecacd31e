package routes

import (
	"fmt"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/smartrail/pkg/railway"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

const kmhToMetresPerSecond = 1 / 3.6

// ToGTFSRealtime converts live trains into a full dataset vehicle positions feed
func ToGTFSRealtime(liveTrains []*railway.LiveTrain, generated uint64) *gtfsrt.FeedMessage {
	entities := make([]*gtfsrt.FeedEntity, 0, len(liveTrains))

	for _, liveTrain := range liveTrains {
		trainID := fmt.Sprint(liveTrain.TrainID)

		vehiclePosition := &gtfsrt.VehiclePosition{
			Vehicle: &gtfsrt.VehicleDescriptor{
				Id:    proto.String(trainID),
				Label: proto.String(fmt.Sprintf("%s %s", liveTrain.TrainNumber, liveTrain.TrainName)),
			},
			Position: &gtfsrt.Position{
				Latitude:  proto.Float32(float32(liveTrain.Latitude)),
				Longitude: proto.Float32(float32(liveTrain.Longitude)),
				Bearing:   proto.Float32(float32(liveTrain.Heading)),
				Speed:     proto.Float32(float32(liveTrain.Speed * kmhToMetresPerSecond)),
			},
			Timestamp: proto.Uint64(uint64(liveTrain.Timestamp.Unix())),
		}

		if liveTrain.HasStation() {
			vehiclePosition.StopId = proto.String(fmt.Sprint(liveTrain.StationID))
			vehiclePosition.CurrentStatus = gtfsrt.VehiclePosition_IN_TRANSIT_TO.Enum()
		}

		entities = append(entities, &gtfsrt.FeedEntity{
			Id:      proto.String("train-" + trainID),
			Vehicle: vehiclePosition,
		})
	}

	return &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrt.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(generated),
		},
		Entity: entities,
	}
}

func getVehiclePositions(services *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		liveTrains, err := services.Recorder.LiveSnapshot(c.UserContext())
		if err != nil {
			return sendError(c, err)
		}

		feed := ToGTFSRealtime(liveTrains, uint64(services.Recorder.Now().Unix()))

		if c.Query("format") == "text" {
			text, err := prototext.Marshal(feed)
			if err != nil {
				return sendError(c, err)
			}

			c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
			return c.Send(text)
		}

		data, err := proto.Marshal(feed)
		if err != nil {
			return sendError(c, err)
		}

		c.Set(fiber.HeaderContentType, "application/x-protobuf")
		return c.Send(data)
	}
}
