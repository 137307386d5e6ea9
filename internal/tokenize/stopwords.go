package tokenize

// EnglishStopwords is the default English stopword list.
var EnglishStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before",
	"being", "below", "between", "both", "but", "by", "can", "could", "did",
	"do", "does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "had", "has", "have", "having", "he", "her", "here", "hers",
	"herself", "him", "himself", "his", "how", "i", "if", "in", "into", "is",
	"it", "its", "itself", "just", "me", "more", "most", "my", "myself", "no",
	"nor", "not", "now", "of", "off", "on", "once", "only", "or", "other",
	"our", "ours", "ourselves", "out", "over", "own", "same", "she", "should",
	"so", "some", "such", "than", "that", "the", "their", "theirs", "them",
	"themselves", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "very", "was", "we",
	"were", "what", "when", "where", "which", "while", "who", "whom", "why",
	"will", "with", "would", "you", "your", "yours", "yourself",
	"yourselves",
}

// CJKStopwords lists multi-character function words. Single characters are
// left to the noise-bigram rule so that character-level query tokens survive.
var CJKStopwords = []string{
	"我们", "你们", "他们", "她们", "它们", "这个", "那个", "这些", "那些",
	"什么", "怎么", "为什么", "因为", "所以", "但是", "如果", "然后", "已经",
	"可以", "没有", "一个", "就是", "还是", "或者", "以及", "而且", "虽然",
	"不过", "只是", "自己", "这样", "那样", "之后", "之前", "以后", "以前",
	"其中", "这里", "那里", "哪里",
}

// NoiseChars are function characters. A CJK bigram made of two of them,
// such as "的是", carries no meaning on its own.
var NoiseChars = []string{
	"的", "了", "是", "在", "和", "与", "及", "或", "也", "就", "都", "而",
	"着", "之", "其", "这", "那", "有", "为", "以", "于", "对", "把", "被",
	"从", "我", "你", "他", "她", "它", "们", "个", "吗", "呢", "吧", "啊",
}

// BuildStopWordMap converts a word list to a set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var (
	defaultEnglishStops = BuildStopWordMap(EnglishStopwords)
	defaultCJKStops     = BuildStopWordMap(CJKStopwords)
	noiseCharSet        = func() map[rune]struct{} {
		m := make(map[rune]struct{}, len(NoiseChars))
		for _, c := range NoiseChars {
			for _, r := range c {
				m[r] = struct{}{}
			}
		}
		return m
	}()
)
