package models

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&Profile{},
		&Opportunity{},
		&Engagement{},
		&PointsTransaction{},
		&Reward{},
		&RewardClaim{},
		&Achievement{},
		&UserAchievement{},
		&SocialAccount{},
		&Conversation{},
		&ConversationMember{},
		&Message{},
		&CommunityGroup{},
		&GroupMembership{},
		&Notification{},
	}
}
