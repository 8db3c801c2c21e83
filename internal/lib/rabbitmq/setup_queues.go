package rabbitmq

// QueueConfig описывает очередь и шаблон ключа, по которому она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// EventQueues возвращает очереди доменных событий реферальной сети.
func EventQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "referral.users", RoutingKey: "user.#"},
		{QueueName: "referral.commissions", RoutingKey: "commission.#"},
	}
}
