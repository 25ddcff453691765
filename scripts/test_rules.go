package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"cropwatch/internal/alerts"
	"cropwatch/internal/config"
	"cropwatch/internal/db"
	"cropwatch/internal/mqtt"
	"cropwatch/internal/realtime"
	"cropwatch/internal/telemetry"
)

// Rule tester. Two modes:
//
//	publish  -dev <eui> -primary 25.3 -secondary 61  publishes a cw_devices UPDATE event
//	evaluate -dev <eui>                               evaluates the device's rules, printing transitions
func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: test_rules publish|evaluate -dev <dev_eui> [flags]")
		os.Exit(2)
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	devEUI := fs.String("dev", "", "device EUI")
	primary := fs.Float64("primary", 22.5, "primary reading")
	secondary := fs.Float64("secondary", 55, "secondary reading")
	co2 := fs.Float64("co2", -1, "co2 reading, negative to omit")
	_ = fs.Parse(os.Args[2:])
	if *devEUI == "" {
		log.Fatal("-dev is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := zap.NewExample()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "publish":
		record := map[string]any{
			"dev_eui":              *devEUI,
			"primary_data":         *primary,
			"secondary_data":       *secondary,
			"last_data_updated_at": time.Now().UTC().Format(time.RFC3339),
		}
		if *co2 >= 0 {
			record["co2"] = *co2
		}
		runPublish(ctx, cfg, logger, record)
	case "evaluate":
		runEvaluate(ctx, cfg, logger, *devEUI)
	default:
		log.Fatalf("unknown mode %q", os.Args[1])
	}
}

func runPublish(ctx context.Context, cfg *config.Config, logger *zap.Logger, record map[string]any) {
	client, err := mqtt.NewMQTTClient(cfg.MQTT, logger)
	if err != nil {
		log.Fatalf("Failed to connect to MQTT: %v", err)
	}
	defer client.Disconnect(250)

	payload, err := realtime.EncodeEvent(realtime.EventUpdate, record)
	if err != nil {
		log.Fatalf("Failed to encode event: %v", err)
	}
	topic := fmt.Sprintf("cropwatch/db/cw_devices/%s", record["dev_eui"])
	if err := mqtt.NewPublisher(client, cfg.MQTT.QoS).Publish(ctx, topic, payload); err != nil {
		log.Fatalf("Failed to publish: %v", err)
	}
	fmt.Printf("Published %s\n%s\n", topic, payload)
}

func runEvaluate(ctx context.Context, cfg *config.Config, logger *zap.Logger, devEUI string) {
	dbConn, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dbConn.Close()

	row, err := dbConn.DeviceByEUI(ctx, devEUI)
	if err != nil {
		log.Fatalf("Failed to load device: %v", err)
	}
	dt, loc := realtime.ResolveReferences(ctx, dbConn, row, logger)
	device := telemetry.NewNormalizer().Normalize(row, dt, loc)
	fmt.Printf("Device %s: %.2f C, %.1f %%RH, status %s\n", device.ID, device.TemperatureC, device.Humidity, device.Status)

	transitions, err := alerts.NewEvaluator(dbConn, stdoutPublisher{}, logger).Evaluate(ctx, device)
	if err != nil {
		log.Fatalf("Failed to evaluate rules: %v", err)
	}
	if len(transitions) == 0 {
		fmt.Println("No rule changed state")
	}
}

type stdoutPublisher struct{}

func (stdoutPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	var pretty map[string]any
	if err := json.Unmarshal(payload, &pretty); err != nil {
		return err
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Printf("%s\n%s\n", topic, out)
	return nil
}
