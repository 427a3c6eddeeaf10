/*
Package sdk simulates facility sensor nodes against a facilityobs server.

It speaks the same protocol as device firmware, so it is useful for demos,
load checks and filling a fresh install with history.

# Quick Start

Provision devices from the admin API first, then point the client at them:

	rst, _ := sdk.DeviceFromID("RST12345678")
	dpt, _ := sdk.DeviceFromID("DPT87654321")

	client, err := sdk.New(sdk.ClientConfig{
	    Endpoint: "http://localhost:8080",
	    Devices:  []sdk.Device{rst, dpt},
	    Interval: 30 * time.Second,
	})
	if err != nil {
	    log.Fatal(err)
	}

	client.Start(ctx)
	defer client.Stop()

Every Interval the client sends one reading per device with
GET /api/iot/update and then checks the device reset flag, clearing it the
way a rebooted node would.

# Values

Each sensor value is drawn uniformly within the sensor's limits and rounded
to two decimals. AlertRate sets the share of values pushed outside the
limits so dashboards show alerts:

	sdk.ClientConfig{AlertRate: 0.05}

Sensors without limits draw from 0..100.

# Device Clock

Firmware clocks have no zone. Set DeviceClock to send timestamps as
"2006-01-02 15:04:05" wall time in that location; the server interprets
them with its configured offset. Without it timestamps go out as RFC3339.

# Backfill

Backfill writes history through the admin import endpoint instead of the
device protocol, so old timestamps keep their place:

	if err := client.Transport().Login(ctx, "admin", password); err != nil {
	    log.Fatal(err)
	}
	result, err := client.Backfill(ctx, 100, 5*time.Minute)

Readings are grouped per device by pkg/sdk/batch and uploaded 1000 at a
time. Entries the server rejects make Backfill return an error that names
the first rejection.

# See Also

  - pkg/sdk/transport for the HTTP protocol
  - pkg/sdk/batch for batching logic
  - cmd/simulator for the command line front end
*/
package sdk
