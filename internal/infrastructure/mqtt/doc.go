// Package mqtt provides the MQTT client autopair uses to mirror device state
// to a broker and to receive commands and display topology updates.
//
// Features:
//   - Auto-reconnect with subscription restore
//   - Retained online/offline status with a Last Will
//   - Panic recovery around message handlers
//
// Topic layout is produced by Topics:
//
//	autopair/system/status
//	autopair/device/{id}/state
//	autopair/event/{type}
//	autopair/command/{id}
//	autopair/display/state
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.DeviceState(id), payload)
package mqtt
