// Package mqtt provides MQTT client connectivity for Gray Logic Advisor.
//
// The advisor uses the broker for four things:
//   - live readings from bridge state topics (graylogic/state/...)
//   - the retained run-now flag (graylogic/advisor/run)
//   - the approval channel (outbound batches, label edits, inbound replies)
//   - command topics for executed actions (graylogic/advisor/command/...)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.RunFlag(), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
