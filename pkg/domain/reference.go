package domain

// ReferenceSettings は参照写真パネルの設定です。
// UsePhoto が有効な間は、オーバーレイ合成は行われません。
type ReferenceSettings struct {
	Photo          []byte
	PhotoMIME      string
	UsePhoto       bool
	UseStyle       bool
	UseComposition bool
	KeepOverlays   bool
}

// Active は参照写真が生成を主導している状態かを返します。
func (r ReferenceSettings) Active() bool {
	return r.UsePhoto
}

// HasPhoto は参照写真が設定されているかを返します。
func (r ReferenceSettings) HasPhoto() bool {
	return len(r.Photo) > 0
}

// SetUsePhoto は参照写真モードを切り替えます。
// 無効化した場合は写真と、それに依存するフラグもすべてクリアします。
func (r *ReferenceSettings) SetUsePhoto(on bool) {
	r.UsePhoto = on
	if !on {
		r.Photo = nil
		r.PhotoMIME = ""
		r.UseStyle = false
		r.UseComposition = false
		r.KeepOverlays = false
	}
}
