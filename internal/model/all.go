package model

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Category{},
		&Listing{},
		&ListingImage{},
		&Message{},
		&MessageFile{},
		&SentOnMessage{},
		&PushNotification{},
	}
}
