package llm

import (
	"strings"

	"github.com/joseph-ayodele/bill-extractor/constants"
)

// OCRSystemPrompt instructs the OCR model to transcribe bills verbatim.
const OCRSystemPrompt = `あなたは通信費・ITサービスの請求書を読み取るOCRエンジンです。
入力されたPDFまたは画像に書かれている文字を、省略や要約をせずにそのまま書き起こしてください。
- 表は行ごとに1行で出力し、列はタブで区切ってください。
- 金額・電話番号・回線番号・日付は記載どおりの表記で出力してください。
- 読み取れない文字は推測せず「?」としてください。
- 説明文や前置きは出力しないでください。`

const rowRules = `出力ルール:
- 出力はMarkdownテーブルのデータ行のみとし、ヘッダー行・区切り行・説明文は出力しないでください。
- 各行は「| 番号 | サービス | 金額(円) | 備考 |」の4列で出力してください。
- 番号には電話番号・回線番号・契約番号など明細を識別する番号を記載してください。不明な場合は空欄にしてください。
- 金額(円)はカンマや円記号を付けない税抜の整数で記載してください。割引はマイナスで記載してください。
- 備考には対象期間や補足事項を簡潔に記載してください。
- 小計・合計・消費税の行は出力しないでください。`

var companyHints = map[constants.Company]string{
	constants.CompanyNTT: `NTT東日本・NTT西日本・NTT Communicationsの請求書です。
「ご利用電話番号」ごとに、基本料・付加サービス・通話料などの内訳を1行ずつ抽出してください。`,
	constants.CompanyOtsuka: `大塚商会の請求書です。
品名・サービス名ごとに1行とし、保守契約やサポートの契約番号があれば番号欄に記載してください。`,
	constants.CompanyNTTDocomoBiz: `NTTドコモビジネス(OCN・docomo Business)の請求書です。
契約ID・回線番号ごとに、月額料金・オプション料金・割引を1行ずつ抽出してください。`,
	constants.CompanySoftBank: `ソフトバンクの請求書です。
電話番号ごとに、基本使用料・通話料・データ通信料・割引を1行ずつ抽出してください。`,
	constants.CompanyForval: `フォーバルの請求書です。
サービス名ごとに1行とし、リース・保守の契約番号があれば番号欄に記載してください。`,
	constants.CompanyOther: `通信費・ITサービスに関する請求書です。
明細に記載されたサービスごとに1行ずつ抽出してください。`,
}

// AnalysisPrompt returns the system prompt used to turn OCR text of a
// company's bill into markdown table rows.
func AnalysisPrompt(company constants.Company) string {
	hint, ok := companyHints[company]
	if !ok {
		hint = companyHints[constants.CompanyOther]
	}
	var b strings.Builder
	b.WriteString("あなたは請求書の明細を整理するアシスタントです。\n")
	b.WriteString(hint)
	b.WriteString("\n\n")
	b.WriteString(rowRules)
	return b.String()
}
