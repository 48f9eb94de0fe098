package pipeline

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// titleSeparators 标题候选的分隔符，英文逗号和阿拉伯文逗号
const titleSeparators = ",،"

// ExtractTitle 从模型返回的候选标题文本中取第一个非空标题
// 模型被要求用逗号分隔多个候选，阿拉伯语输出会用阿拉伯文逗号
func ExtractTitle(raw string) string {
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
		return strings.ContainsRune(titleSeparators, r)
	}) {
		if t := strings.TrimSpace(part); t != "" {
			return t
		}
	}
	return ""
}

// lineReplacer 把标点规整成句号分隔的形式
// 冒号、连字符、下划线视为停顿换成空格，感叹号和逗号统一成句号，星号（markdown 加粗）直接去掉
var lineReplacer = strings.NewReplacer(
	":", " ",
	"-", " ",
	"_", " ",
	"!", ".",
	"*", "",
	",", ".",
)

// SplitLines 把脚本文本切分成逐句的列表
// 每一句对应一张图片和一段配音，切分结果决定最终视频的片段数
func SplitLines(text string) []string {
	text = norm.NFC.String(text)
	text = lineReplacer.Replace(text)

	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		for _, sentence := range strings.Split(line, ".") {
			if s := strings.TrimSpace(sentence); s != "" {
				lines = append(lines, s)
			}
		}
	}
	return lines
}
