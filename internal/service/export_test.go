package service

var ConversationTitle = conversationTitle
