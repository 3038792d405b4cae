// Package fsm holds the state machines that track a delivery, each of its
// commands and each drained pending item.
package fsm

// Command states. Rejected, Executed, Delivered, Queued and Failed are terminal.
const (
	CommandStateReceived  = "received"
	CommandStateRendered  = "rendered"
	CommandStateRejected  = "rejected"
	CommandStateExecuted  = "executed"
	CommandStateDelivered = "delivered"
	CommandStateQueued    = "queued"
	CommandStateFailed    = "failed"
)

const (
	CommandEventReject  = "reject"
	CommandEventRender  = "render"
	CommandEventExecute = "execute"
	CommandEventDeliver = "deliver"
	CommandEventQueue   = "queue"
	CommandEventFail    = "fail"
)

const (
	DeliveryStateValidated  = "validated"
	DeliveryStateProcessing = "processing"
	DeliveryStateAggregated = "aggregated"
)

const (
	DeliveryEventStart  = "start"
	DeliveryEventFinish = "finish"
)

const (
	ItemStateQueued   = "queued"
	ItemStateDraining = "draining"
	ItemStateGranted  = "granted"
)

const (
	ItemEventDrain   = "drain"
	ItemEventGrant   = "grant"
	ItemEventRestore = "restore"
)
