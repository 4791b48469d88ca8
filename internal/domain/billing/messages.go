package billing

import "fmt"

// MessageBuilder renders the customer-facing reminder texts. The wording
// (including the emoji) is product copy and is kept verbatim; only the
// product name is configurable.
type MessageBuilder struct {
	productName string
}

func NewMessageBuilder(productName string) *MessageBuilder {
	if productName == "" {
		productName = "Gesfood"
	}
	return &MessageBuilder{productName: productName}
}

// ForCategory renders the message for a classified invoice. daysOverdue is
// only consulted for the overdue categories. Returns false for CategoryNone.
func (b *MessageBuilder) ForCategory(cat Category, customerName string, daysOverdue int) (string, bool) {
	switch cat {
	case CategoryReminder5:
		return b.Reminder(customerName, 5), true
	case CategoryReminder3:
		return b.Reminder(customerName, 3), true
	case CategoryReminder2:
		return b.Reminder(customerName, 2), true
	case CategoryDueToday:
		return b.DueToday(customerName), true
	case CategoryOverdueShort, CategoryOverdueMid:
		return b.Overdue(customerName, daysOverdue), true
	case CategoryUrgent:
		return b.Urgency(customerName), true
	case CategorySuspension:
		return b.Suspension(customerName), true
	default:
		return "", false
	}
}

func (b *MessageBuilder) Reminder(customerName string, daysLeft int) string {
	return fmt.Sprintf(`👋 Olá %s!

📅 Sua assinatura do %s vence em %d dias.

💳 Para manter o acesso contínuo, realize o pagamento através do PIX.

✅ Caso já tenha efetuado o pagamento, desconsidere esta mensagem.

Obrigado pela preferência! 🙏`, customerName, b.productName, daysLeft)
}

func (b *MessageBuilder) DueToday(customerName string) string {
	return fmt.Sprintf(`⚠️ Olá %s!

📅 Seu plano vence HOJE!

🚨 Para evitar a suspensão do serviço, realize o pagamento através do PIX.

💳 Mantenha seu acesso ativo ao %s.

Obrigado! 🙏`, customerName, b.productName)
}

func (b *MessageBuilder) Overdue(customerName string, daysOverdue int) string {
	plural := ""
	if daysOverdue > 1 {
		plural = "s"
	}
	return fmt.Sprintf(`⏰ Olá %s!

📅 Seu pagamento está atrasado há %d dia%s.

⚠️ Para evitar a suspensão do serviço, realize o pagamento através do PIX.

💳 Mantenha seu acesso ativo ao %s.

Obrigado pela compreensão! 🙏`, customerName, daysOverdue, plural, b.productName)
}

func (b *MessageBuilder) Urgency(customerName string) string {
	return fmt.Sprintf(`🚨 URGENTE - Olá %s!

⚠️ Identificamos que seu pagamento ainda não foi efetuado.

⏰ O acesso será SUSPENSO em 24h se o pagamento não for realizado.

💳 Realize o pagamento através do PIX IMEDIATAMENTE.

🔒 Evite a suspensão do seu serviço %s.

Obrigado pela atenção! 🙏`, customerName, b.productName)
}

func (b *MessageBuilder) Suspension(customerName string) string {
	return fmt.Sprintf(`🔒 Olá %s!

⚠️ Sua conta foi temporariamente SUSPENSA devido ao atraso no pagamento.

💳 Para reativar seu acesso, realize o pagamento através do PIX.

✅ Assim que o pagamento for confirmado, reativaremos automaticamente.

🔄 Seu serviço %s será restaurado em até 24h após o pagamento.

Obrigado pela compreensão! 🙏`, customerName, b.productName)
}

func (b *MessageBuilder) PaymentConfirmation(customerName string) string {
	return fmt.Sprintf(`🎉 Olá %s!

✅ Seu pagamento foi confirmado com sucesso!

💳 Obrigado por manter sua assinatura conosco.

🚀 Seu acesso ao %s está ativo e funcionando perfeitamente.

🙏 Agradecemos sua confiança em nossos serviços!

Tenha um excelente dia! 😊`, customerName, b.productName)
}
