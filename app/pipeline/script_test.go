package pipeline

import "testing"

func TestSplitLines(t *testing.T) {
	got := SplitLines("Hello: world! This is-a test, right_now.")

	want := []string{"Hello  world", "This is a test", "right now"}
	if len(got) != len(want) {
		t.Fatalf("切分数量不符: 期望 %d，实际 %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("第 %d 句不符: 期望 %q，实际 %q", i, want[i], got[i])
		}
	}
}

func TestSplitLinesMultiline(t *testing.T) {
	got := SplitLines("第一句。\nSecond sentence. Third*one!\n\n")

	// 中文句号不是分隔符，保留在句内
	want := []string{"第一句。", "Second sentence", "Thirdone"}
	if len(got) != len(want) {
		t.Fatalf("切分数量不符: 期望 %v，实际 %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("第 %d 句不符: 期望 %q，实际 %q", i, want[i], got[i])
		}
	}
}

func TestSplitLinesEmpty(t *testing.T) {
	if got := SplitLines("   \n  . . .  \n"); len(got) != 0 {
		t.Fatalf("空白输入应切出空列表，实际 %v", got)
	}
}

func TestExtractTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"英文逗号", "Title A, Title B, Title C", "Title A"},
		{"阿拉伯文逗号", "عنوان أول، عنوان ثان", "عنوان أول"},
		{"混合逗号", "Title A, Title B، Title C", "Title A"},
		{"前导空项", " , Title B", "Title B"},
		{"无分隔符", "  Single Title  ", "Single Title"},
		{"全空", " , ، ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractTitle(tc.in); got != tc.want {
				t.Fatalf("期望 %q，实际 %q", tc.want, got)
			}
		})
	}
}
