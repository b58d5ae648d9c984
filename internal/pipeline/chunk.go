package pipeline

import "strings"

// defaultChunkWords 是每个分块的最大词数。
const defaultChunkWords = 200

// chunkText 按词边界将文本切分为每块至多 maxWords 个词的分块。
// 无重叠，最后一个分块可以更短；空文本产生零个分块。
func chunkText(text string, maxWords int) []string {
	if maxWords <= 0 {
		return nil
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	for i := 0; i < len(words); i += maxWords {
		end := i + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
