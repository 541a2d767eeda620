package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	// Messaging
	&Contact{},
	&Conversation{},
	&Message{},
	&Broadcast{},
	&PaymentLink{},
}
