package conversations

import (
	"rentalhub/internal/app/commands"
	"rentalhub/internal/app/dto"
	"rentalhub/internal/app/queries"
)

// Register binds the service operations to the buses.
func Register(svc *Service, cmdBus *commands.InMemoryBus, queryBus *queries.InMemoryBus) {
	commands.RegisterHandler(cmdBus, createConversationKey, commands.HandlerFunc[CreateConversationCommand, dto.Conversation](svc.CreateConversation))
	commands.RegisterHandler(cmdBus, sendMessageKey, commands.HandlerFunc[SendMessageCommand, dto.ChatMessage](svc.SendMessage))
	commands.RegisterHandler(cmdBus, listMessagesKey, commands.HandlerFunc[ListMessagesCommand, dto.ChatMessageList](svc.ListMessages))
	commands.RegisterHandler(cmdBus, markReadKey, commands.HandlerFunc[MarkReadCommand, dto.ReadResult](svc.MarkRead))
	commands.RegisterHandler(cmdBus, changeStatusKey, commands.HandlerFunc[ChangeStatusCommand, dto.Conversation](svc.ChangeStatus))
	commands.RegisterHandler(cmdBus, deleteMessageKey, commands.HandlerFunc[DeleteMessageCommand, struct{}](svc.DeleteMessage))

	queries.RegisterHandler(queryBus, listConversationsKey, queries.HandlerFunc[ListConversationsQuery, dto.ConversationList](svc.ListConversations))
	queries.RegisterHandler(queryBus, getConversationKey, queries.HandlerFunc[GetConversationQuery, dto.Conversation](svc.GetConversation))
}
