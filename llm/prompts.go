package llm

import "strings"

const ragTemplate = `Bạn là trợ lý AI chuyên về nông nghiệp tại Việt Nam.

=== TÀI LIỆU THAM KHẢO ===
{context}

=== CÂU HỎI ===
{query}

=== YÊU CẦU ===
1. Xác định chính xác chủ đề được hỏi.
2. Chỉ dùng những tài liệu thực sự nói về chủ đề đó, bỏ qua tài liệu không liên quan.
3. Nếu không tài liệu nào nói về chủ đề, trả lời: "Tài liệu không có thông tin về [chủ đề]".
4. Trích dẫn nguồn bằng [Nguồn X] cho mỗi thông tin.
5. Trả lời bằng tiếng Việt, rõ ràng, có cấu trúc.

=== TRẢ LỜI ===`

const fallbackTemplate = `Bạn là trợ lý AI chuyên về nông nghiệp tại Việt Nam.
Bạn chỉ trả lời các câu hỏi về nông nghiệp, trồng trọt, chăm sóc cây, thiết bị nông nghiệp và quản lý nông trại.

Câu hỏi: {query}

Hướng dẫn:
- Lời chào hoặc cảm ơn: trả lời lịch sự và giới thiệu những gì bạn hỗ trợ về nông nghiệp.
- Câu hỏi không liên quan nông nghiệp: từ chối lịch sự.
- Câu hỏi nông nghiệp: trả lời chi tiết, chính xác bằng tiếng Việt.

Trả lời:`

const explainTemplate = `Dựa vào dữ liệu sau:
{data}

Hãy giải thích kết quả cho người dùng một cách dễ hiểu.
Câu hỏi gốc: {query}

Trả lời:`

// RAGPrompt asks for an answer grounded only in the numbered context block.
func RAGPrompt(query, context string) string {
	return strings.NewReplacer("{context}", context, "{query}", query).Replace(ragTemplate)
}

// FallbackPrompt asks for an unconstrained agricultural answer.
func FallbackPrompt(query string) string {
	return strings.Replace(fallbackTemplate, "{query}", query, 1)
}

// ExplainPrompt asks for a plain-language explanation of business data.
func ExplainPrompt(query, data string) string {
	return strings.NewReplacer("{data}", data, "{query}", query).Replace(explainTemplate)
}
