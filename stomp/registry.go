package stomp

import (
	"sort"
	"strconv"
)

// Subscription is an active subscription owned by a session.
type Subscription struct {
	ClientID    int
	ID          string
	Destination string
	Ack         string
}

// PendingReceipt is an outstanding receipt request.
type PendingReceipt struct {
	ID      string
	Command Command
}

// registry holds the per-session subscription, transaction and receipt
// tables. It is owned by exactly one Session and never shared.
type registry struct {
	nextClientID  int
	subscriptions map[int]*Subscription
	transactions  map[string]struct{}
	receipts      map[string]*PendingReceipt
}

func newRegistry() *registry {
	return &registry{
		subscriptions: make(map[int]*Subscription),
		transactions:  make(map[string]struct{}),
		receipts:      make(map[string]*PendingReceipt),
	}
}

// generatedIDPrefix keeps generated wire ids apart from plain caller ids.
const generatedIDPrefix = "sub-"

// addSubscription registers a subscription. An empty id is replaced by a
// generated one that no live subscription uses; caller ids are not checked
// for uniqueness.
func (reg *registry) addSubscription(id, destination, ack string) *Subscription {
	clientID := reg.nextClientID
	reg.nextClientID++
	if id == "" {
		id = generatedIDPrefix + strconv.Itoa(clientID)
		for reg.idInUse(id) {
			clientID = reg.nextClientID
			reg.nextClientID++
			id = generatedIDPrefix + strconv.Itoa(clientID)
		}
	}

	subscription := &Subscription{
		ClientID:    clientID,
		ID:          id,
		Destination: destination,
		Ack:         ack,
	}
	reg.subscriptions[clientID] = subscription
	return subscription
}

func (reg *registry) idInUse(id string) bool {
	for _, subscription := range reg.subscriptions {
		if subscription.ID == id {
			return true
		}
	}
	return false
}

func (reg *registry) subscription(clientID int) (*Subscription, bool) {
	subscription, exists := reg.subscriptions[clientID]
	return subscription, exists
}

// subscriptionByID resolves the wire id carried by MESSAGE frames. With
// duplicate caller ids the oldest subscription wins.
func (reg *registry) subscriptionByID(id string) (*Subscription, bool) {
	var found *Subscription
	for _, subscription := range reg.subscriptions {
		if subscription.ID != id {
			continue
		}
		if found == nil || subscription.ClientID < found.ClientID {
			found = subscription
		}
	}
	return found, found != nil
}

func (reg *registry) removeSubscription(clientID int) {
	delete(reg.subscriptions, clientID)
}

func (reg *registry) subscriptionList() []Subscription {
	result := make([]Subscription, 0, len(reg.subscriptions))
	for _, subscription := range reg.subscriptions {
		result = append(result, *subscription)
	}
	sort.Slice(result, func(left, right int) bool {
		return result[left].ClientID < result[right].ClientID
	})
	return result
}

func (reg *registry) beginTransaction(id string) { reg.transactions[id] = struct{}{} }

func (reg *registry) endTransaction(id string) { delete(reg.transactions, id) }

func (reg *registry) hasTransaction(id string) bool {
	_, exists := reg.transactions[id]
	return exists
}

func (reg *registry) transactionList() []string {
	result := make([]string, 0, len(reg.transactions))
	for id := range reg.transactions {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

func (reg *registry) addReceipt(id string, command Command) {
	reg.receipts[id] = &PendingReceipt{ID: id, Command: command}
}

// resolveReceipt removes and returns the pending receipt, if any.
func (reg *registry) resolveReceipt(id string) (*PendingReceipt, bool) {
	pending, exists := reg.receipts[id]
	if exists {
		delete(reg.receipts, id)
	}
	return pending, exists
}

func (reg *registry) pendingReceipts() int { return len(reg.receipts) }

// reset discards every table. Pending receipts are dropped silently. The
// client id counter keeps running so ids stay unique for the session.
func (reg *registry) reset() {
	reg.subscriptions = make(map[int]*Subscription)
	reg.transactions = make(map[string]struct{})
	reg.receipts = make(map[string]*PendingReceipt)
}
